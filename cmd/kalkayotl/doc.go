/*
Command kalkayotl infers distances and phase-space structure of stellar
clusters from astrometric catalogs with a hierarchical Bayesian model.

Program overview

Input is a CSV catalog with one row per star: a unique identifier, the
astrometric observables for the configured dimensionality, their
uncertainties and correlation coefficients in Gaia column naming.
Output is a persisted sample dataset plus CSV summaries.

A run is driven by a YAML configuration file:

  catalog: members.csv
  identifier: source_id
  dimension: 3
  unit: pc
  reference_system: Galactic
  zero_point: [0, 0, -0.000017]
  spatial_correlation: Lindegren+2020
  output: ./out
  prior:
    family: Gaussian
    parametrization: central
    hyper:
      alpha: [[250, 30], [120, 30], [-50, 30]]
      beta: 20
      eta: 10
  sampling:
    chains: 2
    cores: 2
    tune: 2000
    draws: 2000
    posterior_predictive: true
  optimization:
    trials: 3

Dimensionality is 1 (parallax only), 3 (position) or 6 (position and
velocity).  The unit is pc for distances or mas to model parallax
directly (1D only).  Prior families: Uniform, EDSD, Gaussian, GMM,
CGMM, GUM, King and EFF; each family's parameters are either fixed
under prior: or inferred through the hyperparameters under hyper:.

Command line usage

  kalkayotl run -c config.yml          fit and persist the dataset
  kalkayotl convergence -c config.yml  split-Rhat and effective sizes
  kalkayotl stats -c config.yml        Sources.csv and Cluster.csv
  kalkayotl samples -c config.yml      bulk raw-sample container
  kalkayotl evidence -c config.yml     1D nested-sampling evidence

The run command writes Identifiers.csv (the identifier order every
other artifact is keyed by) and Chains.dat into the output directory.
Repeated runs with a fixed sampling seed reproduce their draws exactly.

Public domain.
*/
package main
