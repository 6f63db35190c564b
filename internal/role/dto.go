package role

type RolesResponse struct {
	Roles []Role `json:"roles"`
}
