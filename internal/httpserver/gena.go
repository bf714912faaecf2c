package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumin-project/lumin/pkg/httpclient"
)

const (
	genaDefaultTimeoutSeconds = 1800
	genaMinTimeoutSeconds     = 300
	genaMaxTimeoutSeconds     = 86400
)

// subscription is one active GENA subscription (§4.6.3): a renderer asked
// to be notified of ContentDirectory state changes at callbackURL, keyed by
// a server-generated SID until it expires or UNSUBSCRIBEs.
type subscription struct {
	sid         string
	callbackURL string
	serviceType string
	expiresAt   time.Time
	seq         uint32
}

// genaRegistry tracks live subscriptions for ContentDirectory and
// ConnectionManager eventing and delivers NOTIFY requests through a
// circuit-breaker-protected client, so one unreachable renderer cannot stall
// delivery to the others.
type genaRegistry struct {
	mu            sync.Mutex
	subscriptions map[string]*subscription
	client        *httpclient.Client
}

func newGenaRegistry() *genaRegistry {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.RetryAttempts = 1
	breakerCfg := httpclient.DefaultCircuitBreakerConfig()
	breaker := httpclient.NewCircuitBreakerWithConfig(breakerCfg.GetProfileFor("gena-callback"))

	return &genaRegistry{
		subscriptions: make(map[string]*subscription),
		client:        httpclient.NewWithBreaker(cfg, breaker),
	}
}

func (s *Server) registerGENARoutes() {
	s.router.MethodFunc("SUBSCRIBE", "/service/ContentDirectory/event", s.handleSubscribe(cdServiceType))
	s.router.MethodFunc("UNSUBSCRIBE", "/service/ContentDirectory/event", s.handleUnsubscribe)
	s.router.MethodFunc("SUBSCRIBE", "/service/ConnectionManager/event", s.handleSubscribe(cmServiceType))
	s.router.MethodFunc("UNSUBSCRIBE", "/service/ConnectionManager/event", s.handleUnsubscribe)
}

func (s *Server) handleSubscribe(serviceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sid := r.Header.Get("SID"); sid != "" {
			s.handleRenewSubscription(w, sid)
			return
		}

		callback := extractCallbackURL(r.Header.Get("Callback"))
		if callback == "" {
			http.Error(w, "missing or malformed Callback header", http.StatusPreconditionFailed)
			return
		}

		sid, err := newSID()
		if err != nil {
			http.Error(w, "failed to allocate subscription", http.StatusInternalServerError)
			return
		}

		timeout := parseGENATimeout(r.Header.Get("Timeout"))
		sub := &subscription{
			sid:         sid,
			callbackURL: callback,
			serviceType: serviceType,
			expiresAt:   time.Now().Add(timeout),
		}

		s.gena.mu.Lock()
		s.gena.subscriptions[sid] = sub
		s.gena.mu.Unlock()

		writeSubscribeResponse(w, sid, timeout)

		// The request context is canceled the moment this handler returns,
		// so the confirmatory NOTIFY (required by GENA on every new
		// subscription) runs against a background context instead.
		go s.gena.notifyInitialState(context.Background(), s, sub)
	}
}

func (s *Server) handleRenewSubscription(w http.ResponseWriter, sid string) {
	s.gena.mu.Lock()
	sub, ok := s.gena.subscriptions[sid]
	if ok {
		timeout := parseGENATimeout("")
		sub.expiresAt = time.Now().Add(timeout)
		s.gena.mu.Unlock()
		writeSubscribeResponse(w, sid, timeout)
		return
	}
	s.gena.mu.Unlock()
	http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get("SID")
	if sid == "" {
		http.Error(w, "missing SID header", http.StatusPreconditionFailed)
		return
	}

	s.gena.mu.Lock()
	_, ok := s.gena.subscriptions[sid]
	delete(s.gena.subscriptions, sid)
	s.gena.mu.Unlock()

	if !ok {
		http.Error(w, "unknown subscription", http.StatusPreconditionFailed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// NotifySystemUpdateID pushes the new SystemUpdateID to every live
// ContentDirectory subscriber. Called by the indexer/core layer after a
// write changes SUID.
func (s *Server) NotifySystemUpdateID(ctx context.Context, suid int64) {
	s.gena.mu.Lock()
	subs := make([]*subscription, 0, len(s.gena.subscriptions))
	now := time.Now()
	for sid, sub := range s.gena.subscriptions {
		if now.After(sub.expiresAt) {
			delete(s.gena.subscriptions, sid)
			continue
		}
		if sub.serviceType == cdServiceType {
			subs = append(subs, sub)
		}
	}
	s.gena.mu.Unlock()

	body := genaEventBody(map[string]string{"SystemUpdateID": strconv.FormatInt(suid, 10)})
	for _, sub := range subs {
		s.gena.deliver(ctx, sub, body)
	}
}

func (g *genaRegistry) notifyInitialState(ctx context.Context, s *Server, sub *subscription) {
	if sub.serviceType != cdServiceType {
		return
	}
	suid, err := s.mediaStore.SystemUpdateID(ctx)
	if err != nil {
		return
	}
	body := genaEventBody(map[string]string{"SystemUpdateID": strconv.FormatInt(suid, 10)})
	g.deliver(ctx, sub, body)
}

// deliver sends one NOTIFY request. A failed delivery is not retried beyond
// what the client itself does and does not remove the subscription; a
// subscription is removed only when it expires or is unsubscribed.
func (g *genaRegistry) deliver(ctx context.Context, sub *subscription, body []byte) {
	req, err := http.NewRequestWithContext(ctx, "NOTIFY", sub.callbackURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sub.sid)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(sub.seq), 10))
	sub.seq++

	resp, err := g.client.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func genaEventBody(props map[string]string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0">`)
	for k, v := range props {
		fmt.Fprintf(&b, "<e:property><%s>%s</%s></e:property>", k, xmlEscape(v), k)
	}
	b.WriteString(`</e:propertyset>`)
	return []byte(b.String())
}

func writeSubscribeResponse(w http.ResponseWriter, sid string, timeout time.Duration) {
	w.Header().Set("SID", sid)
	w.Header().Set("Timeout", fmt.Sprintf("Second-%d", int(timeout.Seconds())))
	w.WriteHeader(http.StatusOK)
}

// extractCallbackURL pulls the single "<http://...>" URL out of a Callback
// header. Multiple angle-bracketed URLs may be present; we use the first.
func extractCallbackURL(header string) string {
	start := strings.Index(header, "<")
	end := strings.Index(header, ">")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return header[start+1 : end]
}

// parseGENATimeout parses a "Second-N" Timeout header, clamping to the
// supported range and falling back to the default on anything else
// (including the legal "Second-infinite", which we do not honor).
func parseGENATimeout(header string) time.Duration {
	const prefix = "Second-"
	if strings.HasPrefix(header, prefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(header, prefix)); err == nil {
			if n < genaMinTimeoutSeconds {
				n = genaMinTimeoutSeconds
			}
			if n > genaMaxTimeoutSeconds {
				n = genaMaxTimeoutSeconds
			}
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(genaDefaultTimeoutSeconds) * time.Second
}

func newSID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return "uuid:" + id.String(), nil
}
