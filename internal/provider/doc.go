// Package provider defines the CRUD contract between the apply engine and
// the services that create resources.
//
// A Provider receives fully resolved inputs and returns the resource id and
// its computed outputs. Router dispatches by resource type so custom
// workflows (certificate validation, DNS records) can sit next to a generic
// backend such as the Cloud Control API.
package provider
