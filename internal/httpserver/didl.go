package httpserver

import (
	"encoding/xml"
	"fmt"

	"github.com/lumin-project/lumin/internal/mediatype"
	"github.com/lumin-project/lumin/internal/objectid"
	"github.com/lumin-project/lumin/internal/store"
)

// didlLite is the root DIDL-Lite document (§4.6.2 serialization contract).
type didlLite struct {
	XMLName    xml.Name        `xml:"DIDL-Lite"`
	XMLNS      string          `xml:"xmlns,attr"`
	XMLNSUPnP  string          `xml:"xmlns:upnp,attr"`
	XMLNSDC    string          `xml:"xmlns:dc,attr"`
	Containers []didlContainer `xml:"container"`
	Items      []didlItem      `xml:"item"`
}

type didlContainer struct {
	ID         string `xml:"id,attr"`
	ParentID   string `xml:"parentID,attr"`
	Restricted string `xml:"restricted,attr"`
	ChildCount *int   `xml:"childCount,attr,omitempty"`
	Title      string `xml:"dc:title"`
	Class      string `xml:"upnp:class"`
}

type didlItem struct {
	ID         string  `xml:"id,attr"`
	ParentID   string  `xml:"parentID,attr"`
	Restricted string  `xml:"restricted,attr"`
	Title      string  `xml:"dc:title"`
	Class      string  `xml:"upnp:class"`
	Res        didlRes `xml:"res"`
}

type didlRes struct {
	Size         int64  `xml:"size,attr,omitempty"`
	Duration     string `xml:"duration,attr,omitempty"`
	ProtocolInfo string `xml:"protocolInfo,attr"`
	URL          string `xml:",chardata"`
}

const (
	nsDIDL = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite"
	nsUPnP = "urn:schemas-upnp-org:metadata-1-0/upnp/"
	nsDC   = "http://purl.org/dc/elements/1.1/"
)

func newDIDLLite() *didlLite {
	return &didlLite{
		XMLNS:     nsDIDL,
		XMLNSUPnP: nsUPnP,
		XMLNSDC:   nsDC,
	}
}

// fixedContainerTitles names the root and the four predefined top-level
// containers.
var fixedContainerTitles = map[string]string{
	objectid.Root:              "Root",
	objectid.ContainerVideo:    "Video",
	objectid.ContainerAudio:    "Audio",
	objectid.ContainerImage:    "Image",
	objectid.ContainerByFolder: "By Folder",
}

func fixedContainerParent(id string) string {
	if id == objectid.Root {
		return "-1"
	}
	return objectid.Root
}

// didlForFolder renders a folder (fixed or derived) as a <container>.
func didlForFolder(id, parentID, title string, childCount int) didlContainer {
	return didlContainer{
		ID:         id,
		ParentID:   parentID,
		Restricted: "1",
		ChildCount: &childCount,
		Title:      title,
		Class:      "object.container.storageFolder",
	}
}

// didlForItem renders a MediaItem as an <item>, with res@protocolInfo and
// the absolute stream URL per §4.6.2.
func didlForItem(item store.MediaItem, streamBaseURL string) didlItem {
	class := mediatype.Class(item.MediaClass)

	res := didlRes{
		Size:         item.SizeBytes,
		ProtocolInfo: fmt.Sprintf("http-get:*:%s:*", item.MimeType),
		URL:          fmt.Sprintf("%s/media/%s", streamBaseURL, item.ObjectID),
	}
	if item.DurationSecs != nil {
		res.Duration = formatDIDLDuration(*item.DurationSecs)
	}

	return didlItem{
		ID:         item.ObjectID,
		ParentID:   item.ParentFolderID,
		Restricted: "1",
		Title:      item.DisplayTitle,
		Class:      class.UPnPClass(),
		Res:        res,
	}
}

// formatDIDLDuration renders seconds as DIDL's H+:MM:SS.mmm duration form.
func formatDIDLDuration(seconds float64) string {
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	millis := int64((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// marshalDIDL renders a didlLite document with the standard XML declaration.
func marshalDIDL(d *didlLite) ([]byte, error) {
	body, err := xml.Marshal(d)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
