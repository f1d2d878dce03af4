// Package network carries pointer events between controller and target and
// provides LAN helpers.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DiscoveredHost is a ZedLink target found on the local subnet
type DiscoveredHost struct {
	IP         string `json:"ip"`
	APIPort    int    `json:"api_port"`
	ListenPort int    `json:"listen_port"`
	Name       string `json:"name"`
}

// Address returns the host:port controllers should connect to.
func (h DiscoveredHost) Address() string {
	return net.JoinHostPort(h.IP, fmt.Sprint(h.ListenPort))
}

// GetLocalIP returns the primary local IP address
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// ScanLAN scans the /24 around the primary address for targets exposing the
// status API on apiPort.
func ScanLAN(ctx context.Context, apiPort int) ([]DiscoveredHost, error) {
	localIP, err := GetLocalIP()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IP: %w", err)
	}

	parts := strings.Split(localIP, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid IP address format: %s", localIP)
	}
	subnet := strings.Join(parts[:3], ".")

	client := &http.Client{Timeout: 500 * time.Millisecond}

	var (
		hosts []DiscoveredHost
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	for i := 1; i <= 254; i++ {
		ip := fmt.Sprintf("%s.%d", subnet, i)
		if ip == localIP {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if host, ok := queryHost(ctx, client, ip, apiPort); ok {
				mu.Lock()
				hosts = append(hosts, host)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return hosts, ctx.Err()
}

// queryHost asks a host's status endpoint whether it runs as a target
func queryHost(ctx context.Context, client *http.Client, ip string, apiPort int) (DiscoveredHost, bool) {
	url := fmt.Sprintf("http://%s/api/status", net.JoinHostPort(ip, fmt.Sprint(apiPort)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DiscoveredHost{}, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return DiscoveredHost{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DiscoveredHost{}, false
	}

	var status struct {
		Role       string `json:"role"`
		Name       string `json:"name"`
		ListenPort int    `json:"listen_port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil || status.Role != "target" {
		return DiscoveredHost{}, false
	}
	return DiscoveredHost{IP: ip, APIPort: apiPort, ListenPort: status.ListenPort, Name: status.Name}, true
}

// GetLocalIPs returns all available local IPv4 addresses
func GetLocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}
