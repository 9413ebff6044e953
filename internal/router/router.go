package router

import (
	"fmt"
	"sort"

	"google.golang.org/grpc"

	"github.com/joshp123/mivac/internal/core"
)

// RegisterPlugins registers plugin services on the gRPC server and checks
// that every service a manifest advertises was actually registered. It
// returns the sorted names of all services the server exposes.
func RegisterPlugins(server *grpc.Server, plugins []core.Plugin) ([]string, error) {
	for _, p := range plugins {
		p.RegisterGRPC(server)
	}

	info := server.GetServiceInfo()
	for _, p := range plugins {
		for _, service := range p.Manifest().Services {
			if _, ok := info[service]; !ok {
				return nil, fmt.Errorf("plugin %s advertises %s but did not register it", p.ID(), service)
			}
		}
	}

	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
