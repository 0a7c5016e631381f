// Package consul registers the storefront with a Consul agent so other
// services can discover it. Registration is optional and skipped when no
// agent address is configured.
package consul

import (
	"fmt"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
)

func NewClient(address string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = address
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return client, nil
}

// RegisterService registers this instance with an HTTP health check against
// /ping. A service that stays critical for over a minute is deregistered by
// the agent.
func RegisterService(client *consulapi.Client, serviceName, serviceID, address string, port int) error {
	registration := &consulapi.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: address,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/ping", address, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("consul register %s: %w", serviceID, err)
	}
	return nil
}

func Deregister(client *consulapi.Client, serviceID string) error {
	return client.Agent().ServiceDeregister(serviceID)
}

// ServiceID builds a stable id of the form name-port.
func ServiceID(serviceName string, port int) string {
	return serviceName + "-" + strconv.Itoa(port)
}
