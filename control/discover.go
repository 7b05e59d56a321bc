// SPDX-License-Identifier: EPL-2.0

package control

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/ik5/audroute/internal/log"
)

// query is swapped in tests.
var query = mdns.Query

// Endpoint is a controller found on the network.
type Endpoint struct {
	Name string
	Host string
	Port int
	// Path comes from the "path=" TXT record; "/" when absent.
	Path string
}

func (e Endpoint) URL() string {
	return "ws://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port)) + e.Path
}

func endpointFrom(entry *mdns.ServiceEntry) (Endpoint, bool) {
	ep := Endpoint{Name: entry.Name, Port: entry.Port, Path: "/"}
	switch {
	case entry.AddrV4 != nil:
		ep.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		ep.Host = entry.AddrV6.String()
	default:
		ep.Host = strings.TrimSuffix(entry.Host, ".")
	}
	if ep.Host == "" || ep.Port <= 0 {
		return Endpoint{}, false
	}
	for _, field := range entry.InfoFields {
		if p, ok := strings.CutPrefix(field, "path="); ok && p != "" {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			ep.Path = p
		}
	}
	return ep, true
}

// Discover browses for service (for example "_oscmix._tcp") and returns
// the first usable answer.
func Discover(ctx context.Context, service, domain string, timeout time.Duration) (Endpoint, error) {
	if domain == "" {
		domain = DefaultDomain
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	params := &mdns.QueryParam{
		Service:     service,
		Domain:      domain,
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	done := make(chan error, 1)
	go func() {
		done <- query(params)
	}()

	for {
		select {
		case <-ctx.Done():
			return Endpoint{}, ctx.Err()
		case entry := <-entries:
			if ep, ok := endpointFrom(entry); ok {
				log.WithFields(log.Fields{"service": service, "endpoint": ep.URL()}).Debug("controller discovered")
				return ep, nil
			}
		case err := <-done:
			// drain answers that raced with the end of the query
			for {
				select {
				case entry := <-entries:
					if ep, ok := endpointFrom(entry); ok {
						return ep, nil
					}
				default:
					if err != nil {
						return Endpoint{}, fmt.Errorf("query %s: %w", service, err)
					}
					return Endpoint{}, fmt.Errorf("%w: %s.%s", ErrNotFound, service, domain)
				}
			}
		}
	}
}
