package domain

import "time"

type SessionID string

type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceSmartTV DeviceType = "smarttv"
)

// ParseDeviceType maps a header value to a known device type, defaulting to desktop.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceMobile, DeviceTablet, DeviceSmartTV, DeviceDesktop:
		return DeviceType(s)
	default:
		return DeviceDesktop
	}
}

// MaxQualityID is the highest ladder id a device class may be offered.
func (d DeviceType) MaxQualityID() int {
	switch d {
	case DeviceMobile:
		return 5
	case DeviceTablet:
		return 6
	default:
		return 7
	}
}

type Session struct {
	ID           SessionID  `json:"sessionId"`
	ContentID    string     `json:"contentId"`
	DeviceType   DeviceType `json:"deviceType"`
	EdgeLocation string     `json:"edgeLocation"`
	StartTime    time.Time  `json:"startTime"`
	LastSeen     time.Time  `json:"lastSeen"`
	QualityIDs   []int      `json:"qualityIds"`
}
