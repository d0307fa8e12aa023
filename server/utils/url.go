// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

/*
Package utils holds small request helpers shared by the route handlers.
*/
package utils

import (
	"net/http"
	"strings"
)

// GetQueryParam retrieves the value of a query parameter by name.
//
// If the parameter is not present, it returns the provided default value or an empty string.
func GetQueryParam(r *http.Request, name string, defaultValue ...string) string {
	v := r.URL.Query().Get(name)
	if v != "" {
		return v
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}

	return ""
}

// GetQueryParams returns every non-blank value of a repeated query
// parameter, in order.
func GetQueryParams(r *http.Request, name string) []string {
	var values []string

	for _, v := range r.URL.Query()[name] {
		if strings.TrimSpace(v) != "" {
			values = append(values, v)
		}
	}

	return values
}
