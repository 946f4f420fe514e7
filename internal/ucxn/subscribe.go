package ucxn

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// eventServicePath is the SOAP endpoint of the message event service that
// delivers NEW_MESSAGE webhooks to subscribed callbacks.
const eventServicePath = "/messageeventservice/services/MessageEventService"

// SubscribeRequest describes one event subscription.
type SubscribeRequest struct {
	// Resource is the mailbox alias whose events are delivered.
	Resource string
	// CallbackURL is the public URL the PBX posts notifications to.
	CallbackURL string
	// TTL is the requested subscription lifetime.
	TTL time.Duration
}

// soapEnvelope wraps one operation body in the SOAP 1.1 envelope.
type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	SoapNS  string   `xml:"xmlns:soapenv,attr"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Inner any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Inner); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type subscribeBody struct {
	XMLName     xml.Name `xml:"subscribe"`
	ResourceIDs struct {
		String []string `xml:"string"`
	} `xml:"resourceIdList"`
	EventTypes struct {
		String []string `xml:"string"`
	} `xml:"eventTypeList"`
	CallbackInfo struct {
		URL      string `xml:"callbackServiceUrl"`
		Hostname string `xml:"hostname"`
	} `xml:"callbackServiceInfo"`
	Expiration string `xml:"expiration"`
}

type unsubscribeBody struct {
	XMLName     xml.Name `xml:"unsubscribe"`
	ResourceIDs struct {
		String []string `xml:"string"`
	} `xml:"resourceIdList"`
}

// Subscribe registers (or refreshes) an event subscription for NEW_MESSAGE
// events on the given resource.
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) error {
	body := subscribeBody{Expiration: time.Now().Add(req.TTL).Format(time.RFC3339)}
	body.ResourceIDs.String = []string{req.Resource}
	body.EventTypes.String = []string{"NEW_MESSAGE"}
	body.CallbackInfo.URL = req.CallbackURL
	if u, err := url.Parse(req.CallbackURL); err == nil {
		body.CallbackInfo.Hostname = u.Hostname()
	}

	if err := c.soapCall(ctx, soapEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body:   soapBody{Inner: body},
	}); err != nil {
		return fmt.Errorf("subscribing %s: %w", req.Resource, err)
	}
	return nil
}

// Unsubscribe removes the event subscription for the given resource.
func (c *Client) Unsubscribe(ctx context.Context, resource string) error {
	body := unsubscribeBody{}
	body.ResourceIDs.String = []string{resource}

	if err := c.soapCall(ctx, soapEnvelope{
		SoapNS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body:   soapBody{Inner: body},
	}); err != nil {
		return fmt.Errorf("unsubscribing %s: %w", resource, err)
	}
	return nil
}

func (c *Client) soapCall(ctx context.Context, env soapEnvelope) error {
	payload, err := xml.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding soap envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+eventServicePath, strings.NewReader(xml.Header+string(payload)))
	if err != nil {
		return fmt.Errorf("building soap request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SubscriptionRenewer keeps a message event subscription alive by
// re-subscribing on a fixed interval until its context is cancelled, then
// unsubscribes.
type SubscriptionRenewer struct {
	client   *Client
	req      SubscribeRequest
	interval time.Duration
	done     chan struct{}
}

// NewSubscriptionRenewer builds a renewer; Run must be called to start it.
func NewSubscriptionRenewer(client *Client, req SubscribeRequest, interval time.Duration) *SubscriptionRenewer {
	return &SubscriptionRenewer{
		client:   client,
		req:      req,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run subscribes immediately and then renews until ctx is cancelled. A
// failed renewal is logged and retried at the next tick; the subscription
// stays valid until its previous expiration.
func (r *SubscriptionRenewer) Run(ctx context.Context) {
	defer close(r.done)

	if err := r.client.Subscribe(ctx, r.req); err != nil {
		slog.Error("event subscription failed", "resource", r.req.Resource, "error", err)
	} else {
		slog.Info("event subscription registered",
			"resource", r.req.Resource,
			"callback", r.req.CallbackURL,
			"ttl", r.req.TTL,
		)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Best-effort cleanup with a short independent deadline.
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := r.client.Unsubscribe(cleanupCtx, r.req.Resource); err != nil {
				slog.Warn("event unsubscribe failed", "resource", r.req.Resource, "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := r.client.Subscribe(ctx, r.req); err != nil {
				slog.Error("event subscription renewal failed", "resource", r.req.Resource, "error", err)
				continue
			}
			slog.Debug("event subscription renewed", "resource", r.req.Resource)
		}
	}
}

// Wait blocks until Run has returned.
func (r *SubscriptionRenewer) Wait() {
	<-r.done
}
