package httpserver

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lumin-project/lumin/internal/coreerr"
	"github.com/lumin-project/lumin/internal/mediatype"
	"github.com/lumin-project/lumin/internal/objectid"
)

const (
	cdServiceType = "urn:schemas-upnp-org:service:ContentDirectory:1"
	cmServiceType = "urn:schemas-upnp-org:service:ConnectionManager:1"
)

// browseRequest is the Browse action's argument set.
type browseRequest struct {
	ObjectID       string `xml:"ObjectID"`
	BrowseFlag     string `xml:"BrowseFlag"`
	Filter         string `xml:"Filter"`
	StartingIndex  int    `xml:"StartingIndex"`
	RequestedCount int    `xml:"RequestedCount"`
	SortCriteria   string `xml:"SortCriteria"`
}

// searchRequest is the Search action's argument set.
type searchRequest struct {
	ContainerID    string `xml:"ContainerID"`
	SearchCriteria string `xml:"SearchCriteria"`
	Filter         string `xml:"Filter"`
	StartingIndex  int    `xml:"StartingIndex"`
	RequestedCount int    `xml:"RequestedCount"`
	SortCriteria   string `xml:"SortCriteria"`
}

func (s *Server) registerSOAPRoutes() {
	s.router.Post("/service/ContentDirectory/control", s.handleContentDirectoryControl)
	s.router.Post("/service/ConnectionManager/control", s.handleConnectionManagerControl)
}

func (s *Server) handleContentDirectoryControl(w http.ResponseWriter, r *http.Request) {
	action, body, err := parseSOAPAction(r)
	if err != nil {
		writeSOAPFault(w, 402, "Invalid Args")
		return
	}

	switch action {
	case "Browse":
		s.handleBrowse(w, r.Context(), body)
	case "Search":
		s.handleSearch(w, r.Context(), body)
	case "GetSearchCapabilities":
		writeSOAPResponse(w, cdServiceType, "GetSearchCapabilities", map[string]string{
			"SearchCaps": "upnp:class,dc:title",
		})
	case "GetSortCapabilities":
		writeSOAPResponse(w, cdServiceType, "GetSortCapabilities", map[string]string{
			"SortCaps": "dc:title,dc:date,upnp:class",
		})
	case "GetSystemUpdateID":
		suid, err := s.mediaStore.SystemUpdateID(r.Context())
		if err != nil {
			s.logger.Error("reading system update id", slog.String("error", err.Error()))
			writeSOAPFault(w, 501, "Action Failed")
			return
		}
		writeSOAPResponse(w, cdServiceType, "GetSystemUpdateID", map[string]string{
			"Id": strconv.FormatInt(suid, 10),
		})
	default:
		writeSOAPFault(w, 401, "Invalid Action")
	}
}

func (s *Server) handleConnectionManagerControl(w http.ResponseWriter, r *http.Request) {
	action, _, err := parseSOAPAction(r)
	if err != nil {
		writeSOAPFault(w, 402, "Invalid Args")
		return
	}

	switch action {
	case "GetProtocolInfo":
		writeSOAPResponse(w, cmServiceType, "GetProtocolInfo", map[string]string{
			"Source": "http-get:*:video/mp4:*,http-get:*:audio/mpeg:*,http-get:*:image/jpeg:*",
			"Sink":   "",
		})
	case "GetCurrentConnectionIDs":
		writeSOAPResponse(w, cmServiceType, "GetCurrentConnectionIDs", map[string]string{
			"ConnectionIDs": "0",
		})
	case "GetCurrentConnectionInfo":
		writeSOAPResponse(w, cmServiceType, "GetCurrentConnectionInfo", map[string]string{
			"RcsID":                 "-1",
			"AVTransportID":         "-1",
			"ProtocolInfo":          "",
			"PeerConnectionManager": "",
			"PeerConnectionID":      "-1",
			"Direction":             "Output",
			"Status":                "OK",
		})
	default:
		writeSOAPFault(w, 401, "Invalid Action")
	}
}

func (s *Server) handleBrowse(w http.ResponseWriter, ctx context.Context, body []byte) {
	var req browseRequest
	if err := xml.Unmarshal(wrapAction(body, "Browse", cdServiceType), &req); err != nil {
		writeSOAPFault(w, 402, "Invalid Args")
		return
	}

	switch req.BrowseFlag {
	case "BrowseMetadata":
		s.browseMetadata(w, ctx, req)
	case "BrowseDirectChildren":
		s.browseDirectChildren(w, ctx, req)
	default:
		writeSOAPFault(w, 402, "Invalid Args")
	}
}

func (s *Server) browseMetadata(w http.ResponseWriter, ctx context.Context, req browseRequest) {
	doc := newDIDLLite()

	if objectid.IsFixedContainer(req.ObjectID) {
		title := fixedContainerTitles[req.ObjectID]
		count, suid := s.fixedContainerChildCount(ctx, req.ObjectID)
		doc.Containers = append(doc.Containers, didlForFolder(req.ObjectID, fixedContainerParent(req.ObjectID), title, count))
		s.writeBrowseResult(w, doc, 1, 1, suid)
		return
	}

	item, folder, err := s.mediaStore.GetByID(ctx, req.ObjectID)
	if err != nil {
		if errors.Is(err, coreerr.ErrObjectNotFound) {
			writeSOAPFault(w, 701, "No such object")
			return
		}
		writeSOAPFault(w, 501, "Action Failed")
		return
	}

	suid, _ := s.mediaStore.SystemUpdateID(ctx)

	switch {
	case item != nil:
		doc.Items = append(doc.Items, didlForItem(*item, s.streamBaseURL))
	case folder != nil:
		page, listErr := s.mediaStore.ListChildren(ctx, folder.ObjectID, 0, 1, "")
		childCount := 0
		if listErr == nil {
			childCount = page.Total
		}
		doc.Containers = append(doc.Containers, didlForFolder(folder.ObjectID, folder.ParentID, folder.DisplayTitle, childCount))
	default:
		writeSOAPFault(w, 701, "No such object")
		return
	}

	s.writeBrowseResult(w, doc, 1, 1, suid)
}

func (s *Server) browseDirectChildren(w http.ResponseWriter, ctx context.Context, req browseRequest) {
	var parentID string
	switch {
	case req.ObjectID == objectid.Root:
		s.browseRootChildren(w, ctx, req)
		return
	case req.ObjectID == objectid.ContainerByFolder:
		parentID = objectid.ContainerByFolder
	case objectid.IsFixedContainer(req.ObjectID):
		s.browseClassContainer(w, ctx, req)
		return
	default:
		parentID = req.ObjectID
	}

	page, err := s.mediaStore.ListChildren(ctx, parentID, req.StartingIndex, req.RequestedCount, req.SortCriteria)
	if err != nil {
		writeSOAPFault(w, 501, "Action Failed")
		return
	}

	doc := newDIDLLite()
	for _, f := range page.Folders {
		childCount, _ := s.mediaStore.ListChildren(ctx, f.ObjectID, 0, 1, "")
		doc.Containers = append(doc.Containers, didlForFolder(f.ObjectID, f.ParentID, f.DisplayTitle, childCount.Total))
	}
	for _, item := range page.Items {
		doc.Items = append(doc.Items, didlForItem(item, s.streamBaseURL))
	}

	s.writeBrowseResult(w, doc, len(doc.Containers)+len(doc.Items), page.Total, page.SUID)
}

// browseRootChildren returns the four fixed top-level containers.
func (s *Server) browseRootChildren(w http.ResponseWriter, ctx context.Context, req browseRequest) {
	ids := []string{objectid.ContainerVideo, objectid.ContainerAudio, objectid.ContainerImage, objectid.ContainerByFolder}

	doc := newDIDLLite()
	var suid int64
	for _, id := range ids {
		count, s2 := s.fixedContainerChildCount(ctx, id)
		suid = s2
		doc.Containers = append(doc.Containers, didlForFolder(id, objectid.Root, fixedContainerTitles[id], count))
	}

	s.writeBrowseResult(w, doc, len(ids), len(ids), suid)
}

// browseClassContainer lists items of one media class (Video/Audio/Image).
func (s *Server) browseClassContainer(w http.ResponseWriter, ctx context.Context, req browseRequest) {
	class := classForContainer(req.ObjectID)
	page, err := s.mediaStore.Search(ctx, searchPredicateFor(class, ""), req.StartingIndex, req.RequestedCount)
	if err != nil {
		writeSOAPFault(w, 501, "Action Failed")
		return
	}

	doc := newDIDLLite()
	for _, item := range page.Items {
		doc.Items = append(doc.Items, didlForItem(item, s.streamBaseURL))
	}

	s.writeBrowseResult(w, doc, len(doc.Items), page.Total, page.SUID)
}

func (s *Server) fixedContainerChildCount(ctx context.Context, id string) (int, int64) {
	switch id {
	case objectid.ContainerByFolder:
		page, err := s.mediaStore.ListChildren(ctx, objectid.ContainerByFolder, 0, 1, "")
		if err != nil {
			return 0, 0
		}
		return page.Total, page.SUID
	case objectid.ContainerVideo, objectid.ContainerAudio, objectid.ContainerImage:
		page, err := s.mediaStore.Search(ctx, searchPredicateFor(classForContainer(id), ""), 0, 1)
		if err != nil {
			return 0, 0
		}
		return page.Total, page.SUID
	default:
		suid, _ := s.mediaStore.SystemUpdateID(ctx)
		const rootChildCount = 4
		return rootChildCount, suid
	}
}

func classForContainer(id string) mediatype.Class {
	switch id {
	case objectid.ContainerVideo:
		return mediatype.ClassVideo
	case objectid.ContainerAudio:
		return mediatype.ClassAudio
	case objectid.ContainerImage:
		return mediatype.ClassImage
	default:
		return ""
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, ctx context.Context, body []byte) {
	var req searchRequest
	if err := xml.Unmarshal(wrapAction(body, "Search", cdServiceType), &req); err != nil {
		writeSOAPFault(w, 402, "Invalid Args")
		return
	}

	predicate, ok := parseSearchCriteria(req.SearchCriteria)
	if !ok {
		writeSOAPFault(w, 720, "Unsupported search criteria")
		return
	}

	page, err := s.mediaStore.Search(ctx, predicate, req.StartingIndex, req.RequestedCount)
	if err != nil {
		writeSOAPFault(w, 501, "Action Failed")
		return
	}

	doc := newDIDLLite()
	for _, item := range page.Items {
		doc.Items = append(doc.Items, didlForItem(item, s.streamBaseURL))
	}

	didlBytes, err := marshalDIDL(doc)
	if err != nil {
		writeSOAPFault(w, 501, "Action Failed")
		return
	}
	writeSOAPResponse(w, cdServiceType, "Search", map[string]string{
		"Result":         string(didlBytes),
		"NumberReturned": strconv.Itoa(len(doc.Items)),
		"TotalMatches":   strconv.Itoa(page.Total),
		"UpdateID":       strconv.FormatInt(page.SUID, 10),
	})
}
