package model

type Hospital struct {
	Base
	Name           string  `json:"name" db:"name"`
	Email          string  `json:"email" db:"email"`
	Phone          string  `json:"phone" db:"phone"`
	Address        string  `json:"address,omitempty" db:"address"`
	RegistrationNo *string `json:"registration_no,omitempty" db:"registration_no"`
	IsActive       bool    `json:"is_active" db:"is_active"`
}

type RegisterHospitalRequest struct {
	HospitalName   string `json:"hospital_name" binding:"required"`
	HospitalEmail  string `json:"hospital_email" binding:"required,email"`
	HospitalPhone  string `json:"hospital_phone" binding:"required"`
	Address        string `json:"address"`
	RegistrationNo string `json:"registration_no"`
	AdminFirstName string `json:"admin_first_name" binding:"required"`
	AdminLastName  string `json:"admin_last_name" binding:"required"`
	AdminEmail     string `json:"admin_email" binding:"required,email"`
	AdminPassword  string `json:"admin_password" binding:"required,min=8"`
	AdminPhone     string `json:"admin_phone"`
}

type RegisterHospitalResponse struct {
	Hospital *Hospital `json:"hospital"`
	Admin    *User     `json:"admin"`
}
