package vacuum

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServiceName is the grpc.health.v1 service name reporting one device.
func HealthServiceName(deviceID string) string {
	return "mivac.vacuum." + deviceID
}

func registerHealth(server *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(server, hs)
}

// updateHealth mirrors each device's last fetch outcome onto the gRPC
// health service. The empty service name reports the plugin as a whole.
func (p *Plugin) updateHealth() {
	failing := p.failingDevices()
	for id := range p.devices {
		status := healthpb.HealthCheckResponse_SERVING
		if _, bad := failing[id]; bad {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		p.grpcHealth.SetServingStatus(HealthServiceName(id), status)
	}
	overall := healthpb.HealthCheckResponse_SERVING
	if len(p.devices) == 0 || len(failing) == len(p.devices) {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.grpcHealth.SetServingStatus("", overall)
}
