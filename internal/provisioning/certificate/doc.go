// Package certificate issues the TLS certificate and publishes the HTTPS
// entry point of a deployment.
//
// Issuance is a small state machine driven by Workflow:
//
//	Requested -> AwaitingDNSPropagation -> Validated -> Issued
//
// The certificate authority and the DNS zone are collaborators behind the
// CertificateAuthority and DNSZone interfaces. Build declares the graph
// nodes for each step; Register wires the handlers that execute them into
// the provider router, so the engine persists every step and a failed
// validation wait resumes without requesting a new certificate.
package certificate
