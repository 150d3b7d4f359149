// Package evolve fits a calibration vector with a steady-state evolutionary
// search. Each iteration breeds one child from two fitness-weighted parents,
// mutates it with a fixed chance and replaces the worst member unless the
// child scores worse. Children close to an existing member are penalised so
// the population keeps several niches; niche size and penalty decay slowly.
//
// Fitness is the sum over projected reference points of the squared distance
// to the nearest detected point. Lower is better.
package evolve
