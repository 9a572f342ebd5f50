package env

import (
	"net"
	"os"
	"time"

	"github.com/google/uuid"
)

// Instance identifies this server process within the fleet.
type Instance struct {
	ID        string
	Name      string
	Hostname  string
	IP        string
	StartTime time.Time
}

func NewInstance(name string) (Instance, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Instance{}, &EnvironmentError{Op: "instance", Err: err}
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return Instance{
		ID:        id.String(),
		Name:      name,
		Hostname:  host,
		IP:        primaryIP(),
		StartTime: time.Now().UTC(),
	}, nil
}

// primaryIP picks the first non-loopback unicast address, preferring IPv4.
func primaryIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	var v6 string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
		if v6 == "" {
			v6 = ipnet.IP.String()
		}
	}
	return v6
}
