package device

import "time"

// Device is a managed device as stored.
type Device struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	SecretHash string    `json:"-"` // never serialised
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// View is the presentation-safe projection of a Device.
type View struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	SecretSet bool      `json:"secret_set"`
	UpdatedAt time.Time `json:"updated_at"`
}

// View returns the projection of d without its secret digest.
func (d *Device) View() View {
	return View{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		SecretSet: d.SecretHash != "",
		UpdatedAt: d.UpdatedAt,
	}
}

// Views projects a slice of devices.
func Views(devices []Device) []View {
	out := make([]View, 0, len(devices))
	for i := range devices {
		out = append(out, devices[i].View())
	}
	return out
}
