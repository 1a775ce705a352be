package epubreader

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// containerXML models the META-INF/container.xml file used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// containerPath is the well-known location of container.xml in an ePub archive.
const containerPath = "META-INF/container.xml"

// packageMediaType marks the rootfile that names the package document.
const packageMediaType = "application/oebps-package+xml"

// parseContainer reads the archive entry point and returns the path of the
// package document. A missing or unusable container.xml is ErrMalformedArchive.
func parseContainer(a Archive) (string, error) {
	data, err := a.ReadFile(containerPath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return "", fmt.Errorf("epubreader: %s missing: %w", containerPath, ErrMalformedArchive)
		}
		return "", fmt.Errorf("epubreader: read %s: %v: %w", containerPath, err, ErrMalformedArchive)
	}
	return parseContainerXML(stripBOM(data))
}

// parseContainerXML decodes container.xml, preferring the rootfile with the
// OPF media type and falling back to the first non-empty full-path.
func parseContainerXML(data []byte) (string, error) {
	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", fmt.Errorf("epubreader: parse container.xml: %v: %w", err, ErrMalformedArchive)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}

	if fallbackPath == "" {
		return "", fmt.Errorf("epubreader: container.xml names no package document: %w", ErrMalformedArchive)
	}
	return fallbackPath, nil
}
