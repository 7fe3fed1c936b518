package authroles

import (
	domainauth "github.com/optilab/optilab-api/internal/domain/auth"
)

// StaticRoleMapper maps IdP groups to application roles by simple string
// membership rules.
//
// An empty StudentGroup means every authenticated user counts as a student;
// an empty InstructorGroup grants the instructor role to nobody.
type StaticRoleMapper struct {
	InstructorGroup string
	StudentGroup    string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.InstructorGroup != "" && g == m.InstructorGroup {
			return domainauth.RoleInstructor
		}
	}
	if m.StudentGroup == "" {
		return domainauth.RoleStudent
	}
	for _, g := range groups {
		if g == m.StudentGroup {
			return domainauth.RoleStudent
		}
	}
	return domainauth.RoleGuest
}
