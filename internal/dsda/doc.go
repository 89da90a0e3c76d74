// Package dsda implements the Discrete-Steepest-Descent Algorithm (D-SDA) for
// mixed discrete/continuous optimization.
//
// The search walks a lattice of integer "external variables". Every lattice
// point (a Configuration) is turned into a continuous subproblem by a
// Reformulator and solved by an Oracle. Starting from a given point the
// Solver evaluates all in-bounds neighbors, moves to the best one (with a
// plateau-acceptance rule that prefers the farthest of equally good moves),
// then keeps stepping along the winning direction while that still improves.
// The run ends at a local optimum of the chosen neighborhood or when the time
// budget is spent.
//
// Solved continuous states are chained between evaluations through opaque
// warm-start handles issued by a WarmStartStore.
package dsda
