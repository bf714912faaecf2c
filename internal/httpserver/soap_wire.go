package httpserver

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/lumin-project/lumin/internal/mediatype"
	"github.com/lumin-project/lumin/internal/store"
)

// soapActionHeader matches the quoted action URI in the SOAPACTION header,
// e.g. "urn:schemas-upnp-org:service:ContentDirectory:1#Browse".
var soapActionHeader = regexp.MustCompile(`"([^"]+)#([^"]+)"`)

// parseSOAPAction reads the request body and extracts the action name from
// the SOAPACTION header (§6.3), returning the raw envelope bytes for the
// caller to pick the action-specific element out of.
func parseSOAPAction(r *http.Request) (string, []byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("reading SOAP body: %w", err)
	}

	header := r.Header.Get("SOAPACTION")
	m := soapActionHeader.FindStringSubmatch(header)
	if m == nil {
		return "", nil, fmt.Errorf("missing or malformed SOAPACTION header %q", header)
	}
	return m[2], body, nil
}

// wrapAction extracts the <ActionName>...</ActionName> element out of a full
// SOAP envelope so it can be unmarshaled directly into the action's argument
// struct without fighting the surrounding Envelope/Body/namespace prefixes.
func wrapAction(body []byte, action, serviceType string) []byte {
	var env struct {
		Body struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &env); err != nil {
		return body
	}
	_ = serviceType
	_ = action
	return env.Body.Inner
}

// writeSOAPResponse wraps args in a SOAP 1.1 envelope for the given action
// response and writes it with a 200 status.
func writeSOAPResponse(w http.ResponseWriter, serviceType, action string, args map[string]string) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&b, `<u:%sResponse xmlns:u=%q>`, action, serviceType)
	for _, k := range sortedKeys(args) {
		fmt.Fprintf(&b, "<%s>%s</%s>", k, xmlEscape(args[k]), k)
	}
	fmt.Fprintf(&b, `</u:%sResponse>`, action)
	b.WriteString(`</s:Body></s:Envelope>`)

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// writeSOAPFault writes a SOAP fault envelope carrying a UPnPError code and
// description per §7's SOAP fault mapping.
func writeSOAPFault(w http.ResponseWriter, code int, text string) {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body><s:Fault>`)
	b.WriteString(`<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>`)
	fmt.Fprintf(&b, `<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>%d</errorCode><errorDescription>%s</errorDescription></UPnPError></detail>`, code, xmlEscape(text))
	b.WriteString(`</s:Fault></s:Body></s:Envelope>`)

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// writeBrowseResult renders a DIDL-Lite document as a Browse response,
// wrapping it in the Result/NumberReturned/TotalMatches/UpdateID argument
// set; handleSearch writes the same argument set as a SearchResponse.
func (s *Server) writeBrowseResult(w http.ResponseWriter, doc *didlLite, numberReturned, totalMatches int, suid int64) {
	didlBytes, err := marshalDIDL(doc)
	if err != nil {
		writeSOAPFault(w, 501, "Action Failed")
		return
	}

	writeSOAPResponse(w, cdServiceType, "Browse", map[string]string{
		"Result":         string(didlBytes),
		"NumberReturned": strconv.Itoa(numberReturned),
		"TotalMatches":   strconv.Itoa(totalMatches),
		"UpdateID":       strconv.FormatInt(suid, 10),
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Preserve a stable, readable order without pulling in sort for four
	// call sites; UPnP controllers don't care about argument order.
	preferred := []string{"Result", "NumberReturned", "TotalMatches", "UpdateID", "Id", "SearchCaps", "SortCaps", "Source", "Sink", "ConnectionIDs", "RcsID", "AVTransportID", "ProtocolInfo", "PeerConnectionManager", "PeerConnectionID", "Direction", "Status"}
	ordered := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, p := range preferred {
		if _, ok := m[p]; ok {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}
	for _, k := range keys {
		if !seen[k] {
			ordered = append(ordered, k)
		}
	}
	return ordered
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// searchPredicateFor builds a SearchPredicate for a fixed class container.
func searchPredicateFor(class mediatype.Class, titleSubstr string) store.SearchPredicate {
	return store.SearchPredicate{Class: string(class), TitleSubstr: titleSubstr}
}

// derivedFromClass maps a SearchCriteria's "upnp:class derivedfrom ..."
// clause to our internal media class, per §4.6.2's supported criteria
// subset.
var derivedFromClass = map[string]mediatype.Class{
	`"object.item.videoItem"`:            mediatype.ClassVideo,
	`"object.item.audioItem"`:            mediatype.ClassAudio,
	`"object.item.imageItem"`:            mediatype.ClassImage,
	`"object.item.audioItem.musicTrack"`: mediatype.ClassAudio,
	`"object.item.imageItem.photo"`:      mediatype.ClassImage,
}

var (
	searchDerivedFromRe = regexp.MustCompile(`upnp:class\s+derivedfrom\s+("[^"]*")`)
	searchTitleContains = regexp.MustCompile(`dc:title\s+contains\s+"([^"]*)"`)
)

// parseSearchCriteria supports the subset of the UPnP SearchCriteria
// grammar named in §4.6.2: a mandatory "upnp:class derivedfrom ..." clause,
// optionally ANDed with "dc:title contains ...". A bare "*" means "match
// everything" (no class filter). Anything outside this subset is
// unsupported and maps to SOAP fault 720.
func parseSearchCriteria(criteria string) (store.SearchPredicate, bool) {
	criteria = strings.TrimSpace(criteria)
	if criteria == "" || criteria == "*" {
		return store.SearchPredicate{}, true
	}

	var predicate store.SearchPredicate
	if m := searchDerivedFromRe.FindStringSubmatch(criteria); m != nil {
		class, ok := derivedFromClass[m[1]]
		if !ok {
			return store.SearchPredicate{}, false
		}
		predicate.Class = string(class)
	} else {
		return store.SearchPredicate{}, false
	}
	if m := searchTitleContains.FindStringSubmatch(criteria); m != nil {
		predicate.TitleSubstr = m[1]
	}

	rest := searchDerivedFromRe.ReplaceAllString(criteria, "")
	rest = searchTitleContains.ReplaceAllString(rest, "")
	rest = strings.ReplaceAll(strings.ToLower(rest), "and", "")
	if strings.TrimSpace(rest) != "" {
		return store.SearchPredicate{}, false
	}

	return predicate, true
}
