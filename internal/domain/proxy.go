package domain

import "time"

// ProxyProtocol enumerates supported egress proxy protocols. SOCKS proxies
// are represented in data but are not converted to a usable URL here.
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// ProxyTestStatus is the outcome of the last health test for a proxy.
type ProxyTestStatus string

const (
	ProxyTestSuccess ProxyTestStatus = "success"
	ProxyTestFailed  ProxyTestStatus = "failed"
	ProxyTestNever   ProxyTestStatus = "never"
)

// ProxyRecord describes one configured egress proxy.
type ProxyRecord struct {
	ID           string
	Name         string
	Protocol     ProxyProtocol
	Host         string
	Port         int
	Username     string
	Password     string
	LastTest     ProxyTestStatus
	LastTestedAt *time.Time
	UpdatedAt    time.Time
}
