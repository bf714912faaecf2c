package httpserver

import (
	"encoding/xml"
	"net/http"
)

// deviceDescription is the root device description document served at
// /description.xml (§4.6.1).
type deviceDescription struct {
	XMLName     xml.Name      `xml:"root"`
	XMLNS       string        `xml:"xmlns,attr"`
	SpecVersion specVersion   `xml:"specVersion"`
	URLBase     string        `xml:"URLBase"`
	Device      deviceElement `xml:"device"`
}

type specVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

type deviceElement struct {
	DeviceType       string        `xml:"deviceType"`
	FriendlyName     string        `xml:"friendlyName"`
	Manufacturer     string        `xml:"manufacturer"`
	ManufacturerURL  string        `xml:"manufacturerURL,omitempty"`
	ModelDescription string        `xml:"modelDescription,omitempty"`
	ModelName        string        `xml:"modelName"`
	ModelNumber      string        `xml:"modelNumber,omitempty"`
	UDN              string        `xml:"UDN"`
	ServiceList      serviceList   `xml:"serviceList"`
}

type serviceList struct {
	Services []serviceElement `xml:"service"`
}

type serviceElement struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

func (s *Server) registerDescriptionRoutes() {
	s.router.Get("/description.xml", s.handleDeviceDescription)
}

func (s *Server) handleDeviceDescription(w http.ResponseWriter, r *http.Request) {
	doc := deviceDescription{
		XMLNS:       "urn:schemas-upnp-org:device-1-0",
		SpecVersion: specVersion{Major: 1, Minor: 0},
		URLBase:     s.streamBaseURL,
		Device: deviceElement{
			DeviceType:   "urn:schemas-upnp-org:device:MediaServer:1",
			FriendlyName: s.device.FriendlyName,
			Manufacturer: s.device.Manufacturer,
			ModelName:    s.device.ModelName,
			ModelNumber:  s.device.ModelNumber,
			UDN:          "uuid:" + s.device.UUID,
			ServiceList: serviceList{
				Services: []serviceElement{
					{
						ServiceType: cdServiceType,
						ServiceID:   "urn:upnp-org:serviceId:ContentDirectory",
						SCPDURL:     "/service/ContentDirectory/scpd.xml",
						ControlURL:  "/service/ContentDirectory/control",
						EventSubURL: "/service/ContentDirectory/event",
					},
					{
						ServiceType: cmServiceType,
						ServiceID:   "urn:upnp-org:serviceId:ConnectionManager",
						SCPDURL:     "/service/ConnectionManager/scpd.xml",
						ControlURL:  "/service/ConnectionManager/control",
						EventSubURL: "/service/ConnectionManager/event",
					},
				},
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		http.Error(w, "failed to render device description", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=\"utf-8\"")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
