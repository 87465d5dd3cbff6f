// Package main provides the entry point for sockhttp-server.
//
// The server binds the endpoints implied by the configured app prefixes,
// routes each request to the app owning the longest matching prefix and
// answers with that app's static response.
//
// Usage:
//
//	sockhttp-server serve --config /etc/sockhttp/config.yaml
//	sockhttp-server config show --config /etc/sockhttp/config.yaml
//	sockhttp-server config validate --config /etc/sockhttp/config.yaml
//	sockhttp-server version
//
// Editing the config file or sending SIGHUP reconciles the apps and their
// prefixes without dropping endpoints that keep at least one prefix.
package main
