package console

// DashboardData is rendered on the dashboard view.
type DashboardData struct {
	Username    string `json:"username"`
	DeviceCount int    `json:"device_count"`
}

// Tip is one entry on the security tips page.
type Tip struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var securityTips = []Tip{
	{
		Title: "Use a unique secret per device",
		Body:  "A leaked secret then exposes one device, not the whole fleet.",
	},
	{
		Title: "Rotate secrets after staff changes",
		Body:  "Edit the device and enter a new secret; the old one stops working immediately.",
	},
	{
		Title: "Prefer long passphrases",
		Body:  "Length matters more than symbols. Four or more random words is a good start.",
	},
	{
		Title: "Log out on shared machines",
		Body:  "Logging out removes the session on the server, not just in the browser.",
	},
	{
		Title: "Review the audit trail",
		Body:  "Unexpected logins or device changes show up there first.",
	},
}
