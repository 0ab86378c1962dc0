// Package config defines the environment description a provisioning run is
// built from.
//
// The [Environment] value is loaded once (YAML file plus environment
// overrides), validated, and then passed by value into graph construction.
// Nothing in a run mutates it. The package also owns the CIDR arithmetic
// used to allocate one subnet per availability zone and the env-tunable
// timeouts of the apply engine.
package config
