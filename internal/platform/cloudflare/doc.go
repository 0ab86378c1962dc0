// Package cloudflare manages DNS records in Cloudflare zones. It is the
// alternative to Route 53 for publishing certificate validation and alias
// records.
package cloudflare
