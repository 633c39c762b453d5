package models

// DefaultProfilePicURL is assigned to profiles created without a picture.
const DefaultProfilePicURL = "https://www.mgp.net.au/wp-content/uploads/2023/05/150-1503945_transparent-user-png-default-user-image-png-png.png"

// User is a chat participant profile. Only the profile picture changes after creation.
type User struct {
	ID            string `doc:"userId" json:"user_id"`
	DisplayName   string `doc:"displayName" json:"display_name"`
	Email         string `doc:"email" json:"email"`
	ProfilePicURL string `doc:"profilePicUrl" json:"profile_pic_url"`
}
