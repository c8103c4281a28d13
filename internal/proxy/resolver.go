package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"media-orchestrator/internal/domain"
)

// Selection is the outcome of proxy resolution. An empty ProxyID means
// "no proxy". URL is the formatted HTTP(S) proxy URL; it stays empty for
// SOCKS records, which are represented in data but not converted here.
type Selection struct {
	ProxyID string
	Record  *domain.ProxyRecord
	URL     string
}

// Resolver selects a healthy egress proxy or explicitly none. It never
// silently picks an untested or previously-failing proxy: a bad egress path
// makes the whole job fail downstream with a confusing error.
type Resolver struct {
	repo           domain.ProxyRepository
	defaultProxyID string
}

func NewResolver(repo domain.ProxyRepository, defaultProxyID string) *Resolver {
	return &Resolver{repo: repo, defaultProxyID: defaultProxyID}
}

// Resolve returns the requested proxy only if its last health test succeeded,
// falling back to a healthy configured default, then to no proxy at all.
func (r *Resolver) Resolve(ctx context.Context, requestedID string) (Selection, error) {
	if requestedID != "" {
		sel, ok, err := r.tryProxy(ctx, requestedID)
		if err != nil {
			return Selection{}, err
		}
		if ok {
			return sel, nil
		}
	}
	if r.defaultProxyID != "" && r.defaultProxyID != requestedID {
		sel, ok, err := r.tryProxy(ctx, r.defaultProxyID)
		if err != nil {
			return Selection{}, err
		}
		if ok {
			return sel, nil
		}
	}
	return Selection{}, nil
}

func (r *Resolver) tryProxy(ctx context.Context, id string) (Selection, bool, error) {
	record, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Selection{}, false, nil
		}
		return Selection{}, false, fmt.Errorf("load proxy %s: %w", id, err)
	}
	if record.LastTest != domain.ProxyTestSuccess {
		return Selection{}, false, nil
	}
	return Selection{ProxyID: record.ID, Record: record, URL: FormatURL(record)}, true, nil
}

// FormatURL renders an http/https proxy record as a proxy URL usable by HTTP
// clients. SOCKS and unknown protocols format to an empty string.
func FormatURL(record *domain.ProxyRecord) string {
	if record == nil {
		return ""
	}
	switch record.Protocol {
	case domain.ProxyProtocolHTTP, domain.ProxyProtocolHTTPS:
	default:
		return ""
	}
	u := url.URL{
		Scheme: string(record.Protocol),
		Host:   fmt.Sprintf("%s:%d", record.Host, record.Port),
	}
	if record.Username != "" {
		if record.Password != "" {
			u.User = url.UserPassword(record.Username, record.Password)
		} else {
			u.User = url.User(record.Username)
		}
	}
	return u.String()
}
