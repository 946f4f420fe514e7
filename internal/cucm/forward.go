// Package cucm toggles Call Forward All on a directory number through the
// CUCM AXL SOAP API. This runs as an optional companion to the greeting
// toggle so calls skip the mailbox entirely while out-of-office is active.
package cucm

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/icholy/digest"
)

// Options configures a Client.
type Options struct {
	// Endpoint is the full AXL URL, e.g. "https://cucm.example.com:8443/axl/".
	Endpoint string
	Username string
	Password string
	// Pattern is the directory number whose forwarding is toggled.
	Pattern string
	// Destination receives forwarded calls while enabled.
	Destination string
	// InsecureTLS skips certificate validation.
	InsecureTLS bool
	// Timeout bounds each call. Zero means 30 seconds.
	Timeout time.Duration
}

// Client issues AXL updateLine requests against one CUCM cluster. AXL
// endpoints challenge with digest auth, handled by the transport.
type Client struct {
	endpoint    string
	pattern     string
	destination string
	http        *http.Client
}

// New builds a Client from opts.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	inner := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureTLS {
		inner.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		endpoint:    opts.Endpoint,
		pattern:     opts.Pattern,
		destination: opts.Destination,
		http: &http.Client{
			Timeout: timeout,
			Transport: &digest.Transport{
				Username:  opts.Username,
				Password:  opts.Password,
				Transport: inner,
			},
		},
	}
}

type axlEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	SoapNS  string   `xml:"xmlns:soapenv,attr"`
	AXLNS   string   `xml:"xmlns:ns,attr"`
	Body    struct {
		UpdateLine updateLine `xml:"ns:updateLine"`
	} `xml:"soapenv:Body"`
}

type updateLine struct {
	Pattern        string         `xml:"pattern"`
	CallForwardAll callForwardAll `xml:"callForwardAll"`
}

type callForwardAll struct {
	Destination           string `xml:"destination"`
	ForwardToVoiceMessage string `xml:"callForwardToVoiceMail"`
}

// SetForwarding points Call Forward All at the configured destination when
// enabled, and clears it when disabled.
func (c *Client) SetForwarding(ctx context.Context, enabled bool) error {
	env := axlEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		AXLNS:  "http://www.cisco.com/AXL/API/12.5",
	}
	env.Body.UpdateLine.Pattern = c.pattern
	env.Body.UpdateLine.CallForwardAll.ForwardToVoiceMessage = "false"
	if enabled {
		env.Body.UpdateLine.CallForwardAll.Destination = c.destination
	}

	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding axl request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(xml.Header+string(payload)))
	if err != nil {
		return fmt.Errorf("building axl request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"CUCM:DB ver=12.5 updateLine"`)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("updating call forwarding for %s: %w", c.pattern, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("updating call forwarding for %s: status %d: %s",
			c.pattern, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
