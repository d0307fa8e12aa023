// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// IPv4 and IPv6 address lengths as measured in bits.
const (
	ipv4BitLength = 32
	ipv6BitLength = 128
)

// getClientIP extracts the client's IP address from an HTTP request.
//
// Proxy headers (X-Real-IP, X-Forwarded-For) are only trusted when the
// connection comes from a private or loopback address.
func getClientIP(r *http.Request) net.IP {
	remoteIP := r.RemoteAddr
	if ip, _, err := net.SplitHostPort(remoteIP); err == nil {
		remoteIP = ip
	}

	remote := net.ParseIP(remoteIP)
	if remote == nil {
		log.Error().
			Str("remote_addr", r.RemoteAddr).
			Msg("Could not determine client IP")

		return nil
	}

	if !remote.IsPrivate() && !remote.IsLoopback() {
		return remote
	}

	if realIP := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); realIP != nil {
		return realIP
	}

	// The last X-Forwarded-For hop is the one our proxy saw.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(parts[len(parts)-1])); ip != nil {
			return ip
		}
	}

	return remote
}

// ipMatchesList checks if an IP is within any of the provided CIDRs or matches them exactly.
func ipMatchesList(ip net.IP, cidrs []string) bool {
	ipStr := ip.String()

	for _, cidr := range cidrs {
		if ipStr == cidr {
			return true
		}

		_, subnet, err := net.ParseCIDR(cidr)
		if err == nil && subnet.Contains(ip) {
			return true
		}
	}

	return false
}

// getNetwork masks ip down to its configured network prefix.
func getNetwork(ip net.IP, ipv4Prefix, ipv6Prefix int) *net.IPNet {
	var mask net.IPMask
	if ip.To4() != nil {
		mask = net.CIDRMask(ipv4Prefix, ipv4BitLength)
	} else {
		mask = net.CIDRMask(ipv6Prefix, ipv6BitLength)
	}

	return &net.IPNet{
		IP:   ip.Mask(mask),
		Mask: mask,
	}
}
