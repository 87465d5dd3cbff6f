// Package buildinfo exposes build information for sockhttp.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/sockhttp/internal/infra/buildinfo.Version=v1.0.0"
//
// Without ldflags, Commit falls back to the VCS revision recorded by the Go
// toolchain and GoVersion to the running toolchain version.
package buildinfo
