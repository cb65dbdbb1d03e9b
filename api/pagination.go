// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
	OrderAsc        = "asc"
	OrderDesc       = "desc"
)

var ErrInvalidPagination = errors.New("invalid pagination parameters")

type Page struct {
	Count int
	Page  int
	Order string
}

// ParsePage reads count, page and order from the query string. Count and
// page are clamped to their valid ranges.
func ParsePage(r *http.Request) (Page, error) {
	ret := Page{
		Count: DefaultPageSize,
		Page:  1,
		Order: OrderAsc,
	}
	query := r.URL.Query()
	if v := query.Get("count"); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil {
			return Page{}, ErrInvalidPagination
		}
		ret.Count = min(max(count, 1), MaxPageSize)
	}
	if v := query.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return Page{}, ErrInvalidPagination
		}
		ret.Page = max(page, 1)
	}
	if v := query.Get("order"); v != "" {
		switch order := strings.ToLower(v); order {
		case OrderAsc, OrderDesc:
			ret.Order = order
		default:
			return Page{}, ErrInvalidPagination
		}
	}
	return ret, nil
}

// Apply returns the requested page of items and sets the total headers
func Apply[T any](w http.ResponseWriter, p Page, items []T) []T {
	total := len(items)
	w.Header().Set("X-Pagination-Count-Total", strconv.Itoa(total))
	w.Header().Set(
		"X-Pagination-Page-Total",
		strconv.Itoa((total+p.Count-1)/p.Count),
	)
	if p.Order == OrderDesc {
		reversed := make([]T, total)
		for i, item := range items {
			reversed[total-1-i] = item
		}
		items = reversed
	}
	start := (p.Page - 1) * p.Count
	if start >= total {
		return []T{}
	}
	return items[start:min(start+p.Count, total)]
}
