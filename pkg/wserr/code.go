// Package wserr defines the error-code space relayed to the protocol engine
// and the coded error type carried through the network layer.
package wserr

import "strconv"

// Code is a small integer error category. Zero means no error.
type Code uint8

// HTTP/upgrade errors.
const (
	CodeHTTPUnexpectedResponseCode    Code = 152
	CodeHTTPNoUpgrade                 Code = 153
	CodeHTTPResourceNotLocal          Code = 154
	CodeHTTPProxyAuthenticationFailed Code = 155
	CodeHTTPResponseTimeout           Code = 156
	CodeHTTPResponseSyntaxError       Code = 157
	CodeHTTPResponseValueError        Code = 158
	CodeHTTPResponseMissingHeader     Code = 159
	CodeHTTPWebSocketHeaderError      Code = 160
	CodeHTTPUpgradeRequired           Code = 161
	CodeHTTPUpgradeError              Code = 162
	CodeHTTPTemporaryUnavailable      Code = 163
	CodeHTTPNotAServer                Code = 164
	CodeHTTPError                     Code = 165
)

// TLS errors.
const (
	CodeTLSClientCertificateError     Code = 180
	CodeTLSServerCertificateError     Code = 181
	CodeTLSClientAuthenticationFailed Code = 182
	CodeTLSServerAuthenticationFailed Code = 183
	CodeTLSClientCertificateExpired   Code = 184
	CodeTLSServerCertificateExpired   Code = 185
	CodeTLSClientCertificateRevoked   Code = 186
	CodeTLSServerCertificateRevoked   Code = 187
	CodeTLSError                      Code = 188
)

// DNS, TCP and IP errors.
const (
	CodeDNSUnavailable          Code = 189
	CodeDNSNameResolutionFailed Code = 190
	CodeDNSResolverFailure      Code = 191
	CodeDNSError                Code = 192
	CodeTCPConnectTimeout       Code = 193
	CodeTCPConnectionRefused    Code = 194
	CodeTCPClosedByLocal        Code = 195
	CodeTCPClosedOther          Code = 196
	CodeTCPError                Code = 197
	CodeIPAddressNotReachable   Code = 198
	CodeIPError                 Code = 199
)

// CodeUnsupportedScheme is local to this module: the URI names neither ws
// nor wss.
const CodeUnsupportedScheme Code = 255

// Handshake categories used by the transport worker.
const (
	CodeDNSResolution     = CodeDNSNameResolutionFailed
	CodeConnectionRefused = CodeTCPConnectionRefused
	CodeTLSHandshake      = CodeTLSError
)

var codeNames = map[Code]string{
	CodeHTTPUnexpectedResponseCode:    "HTTP_UNEXPECTED_RESPONSE_CODE",
	CodeHTTPNoUpgrade:                 "HTTP_NO_UPGRADE",
	CodeHTTPResourceNotLocal:          "HTTP_RESOURCE_NOT_LOCAL",
	CodeHTTPProxyAuthenticationFailed: "HTTP_PROXY_AUTHENTICATION_FAILED",
	CodeHTTPResponseTimeout:           "HTTP_RESPONSE_TIMEOUT",
	CodeHTTPResponseSyntaxError:       "HTTP_RESPONSE_SYNTAX_ERROR",
	CodeHTTPResponseValueError:        "HTTP_RESPONSE_VALUE_ERROR",
	CodeHTTPResponseMissingHeader:     "HTTP_RESPONSE_MISSING_HEADER",
	CodeHTTPWebSocketHeaderError:      "HTTP_WEBSOCKET_HEADER_ERROR",
	CodeHTTPUpgradeRequired:           "HTTP_UPGRADE_REQUIRED",
	CodeHTTPUpgradeError:              "HTTP_UPGRADE_ERROR",
	CodeHTTPTemporaryUnavailable:      "HTTP_TEMPORARY_UNAVAILABLE",
	CodeHTTPNotAServer:                "HTTP_NOT_A_SERVER",
	CodeHTTPError:                     "HTTP_ERROR",
	CodeTLSClientCertificateError:     "TLS_CLIENT_CERTIFICATE_ERROR",
	CodeTLSServerCertificateError:     "TLS_SERVER_CERTIFICATE_ERROR",
	CodeTLSClientAuthenticationFailed: "TLS_CLIENT_AUTHENTICATION_FAILED",
	CodeTLSServerAuthenticationFailed: "TLS_SERVER_AUTHENTICATION_FAILED",
	CodeTLSClientCertificateExpired:   "TLS_CLIENT_CERTIFICATE_EXPIRED",
	CodeTLSServerCertificateExpired:   "TLS_SERVER_CERTIFICATE_EXPIRED",
	CodeTLSClientCertificateRevoked:   "TLS_CLIENT_CERTIFICATE_REVOKED",
	CodeTLSServerCertificateRevoked:   "TLS_SERVER_CERTIFICATE_REVOKED",
	CodeTLSError:                      "TLS_ERROR",
	CodeDNSUnavailable:                "DNS_UNAVAILABLE",
	CodeDNSNameResolutionFailed:       "DNS_NAME_RESOLUTION_FAILED",
	CodeDNSResolverFailure:            "DNS_RESOLVER_FAILURE",
	CodeDNSError:                      "DNS_ERROR",
	CodeTCPConnectTimeout:             "TCP_CONNECT_TIMEOUT",
	CodeTCPConnectionRefused:          "TCP_CONNECTION_REFUSED",
	CodeTCPClosedByLocal:              "TCP_CLOSED_BY_LOCAL",
	CodeTCPClosedOther:                "TCP_CLOSED_OTHER",
	CodeTCPError:                      "TCP_ERROR",
	CodeIPAddressNotReachable:         "IP_ADDRESS_NOT_REACHABLE",
	CodeIPError:                       "IP_ERROR",
	CodeUnsupportedScheme:             "UNSUPPORTED_SCHEME",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if c == 0 {
		return "NONE"
	}
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "CODE_" + strconv.Itoa(int(c))
}
