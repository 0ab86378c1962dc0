// Package awsprovider implements the provider and the certificate workflow
// collaborators on top of the AWS SDK.
//
// CloudControl creates, reads, updates and deletes every AWS::* resource
// type through the Cloud Control API, polling asynchronous requests until
// they settle. ACM and Route53 implement certificate.CertificateAuthority
// and certificate.DNSZone. API errors are classified into
// errdefs.ProviderAPIError so the engine retries throttling and transient
// service failures only.
package awsprovider
