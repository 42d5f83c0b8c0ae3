// SPDX-License-Identifier: GPL-3.0-or-later

package mdns

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostFQDN(t *testing.T) {
	host := &Host{Hostname: "mypc", IPv4: netip.MustParseAddr("127.0.0.1")}
	require.Equal(t, "mypc.local.", host.FQDN())
}

func TestHostValidate(t *testing.T) {
	type testCase struct {
		// name is the subtest name.
		name string

		// host is the host to validate.
		host Host

		// expectErr is the expected error, nil on success.
		expectErr error
	}

	cases := []testCase{
		{
			name:      "valid IPv4-only host",
			host:      Host{Hostname: "mypc", IPv4: netip.MustParseAddr("127.0.0.1")},
			expectErr: nil,
		},
		{
			name: "valid dual-stack host",
			host: Host{
				Hostname: "mypc",
				IPv4:     netip.MustParseAddr("192.168.1.10"),
				IPv6:     netip.MustParseAddr("fe80::1"),
			},
			expectErr: nil,
		},
		{
			name:      "empty hostname",
			host:      Host{IPv4: netip.MustParseAddr("127.0.0.1")},
			expectErr: ErrHostnameRequired,
		},
		{
			name:      "hostname with a dot",
			host:      Host{Hostname: "my.pc", IPv4: netip.MustParseAddr("127.0.0.1")},
			expectErr: ErrHostnameInvalid,
		},
		{
			name:      "hostname longer than a DNS label",
			host:      Host{Hostname: strings.Repeat("a", 64), IPv4: netip.MustParseAddr("127.0.0.1")},
			expectErr: ErrHostnameInvalid,
		},
		{
			name:      "non-ASCII hostname",
			host:      Host{Hostname: "caffè", IPv4: netip.MustParseAddr("127.0.0.1")},
			expectErr: ErrHostnameInvalid,
		},
		{
			name:      "missing IPv4 address",
			host:      Host{Hostname: "mypc"},
			expectErr: ErrAddrInvalid,
		},
		{
			name: "IPv6 address in the IPv4 slot",
			host: Host{Hostname: "mypc", IPv4: netip.MustParseAddr("fe80::1")},
			expectErr: ErrAddrInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.host.validate()
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestServiceNames(t *testing.T) {
	svc := &Service{Name: "My Web Server", Service: "_http._tcp", Port: 8080}
	require.Equal(t, "_http._tcp.local.", svc.TypeFQDN())
	require.Equal(t, "My Web Server._http._tcp.local.", svc.InstanceFQDN())
}

func TestServiceValidate(t *testing.T) {
	type testCase struct {
		// name is the subtest name.
		name string

		// service is the descriptor to validate.
		service Service

		// sendCapacity is the send buffer capacity to validate against.
		sendCapacity int

		// expectErr is the expected error, nil on success.
		expectErr error
	}

	cases := []testCase{
		{
			name:         "valid service",
			service:      Service{Name: "web", Service: "_http._tcp", Port: 8080, TXT: []string{"path=/"}},
			sendCapacity: 1500,
			expectErr:    nil,
		},
		{
			name:         "missing instance name",
			service:      Service{Service: "_http._tcp", Port: 8080},
			sendCapacity: 1500,
			expectErr:    ErrServiceInvalid,
		},
		{
			name:         "missing service type",
			service:      Service{Name: "web", Port: 8080},
			sendCapacity: 1500,
			expectErr:    ErrServiceInvalid,
		},
		{
			name:         "missing port",
			service:      Service{Name: "web", Service: "_http._tcp"},
			sendCapacity: 1500,
			expectErr:    ErrServiceInvalid,
		},
		{
			name: "single attribute over 255 octets",
			service: Service{
				Name:    "web",
				Service: "_http._tcp",
				Port:    8080,
				TXT:     []string{"blob=" + strings.Repeat("x", 300)},
			},
			sendCapacity: 1500,
			expectErr:    ErrTXTTooLarge,
		},
		{
			name: "attribute set larger than the send buffer",
			service: Service{
				Name:    "web",
				Service: "_http._tcp",
				Port:    8080,
				TXT: []string{
					"a=" + strings.Repeat("x", 250),
					"b=" + strings.Repeat("x", 250),
				},
			},
			sendCapacity: 512,
			expectErr:    ErrTXTTooLarge,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.service.validate(tc.sendCapacity)
			if tc.expectErr != nil {
				require.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEqualASCIIName(t *testing.T) {
	require.True(t, equalASCIIName("MYPC.local.", "mypc.local."))
	require.True(t, equalASCIIName("_HTTP._tcp.LOCAL.", "_http._tcp.local."))
	require.False(t, equalASCIIName("mypc.local.", "mypc2.local."))
	require.False(t, equalASCIIName("mypc.local.", "mypc.local"))
}
