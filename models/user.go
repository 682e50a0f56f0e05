package models

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/taminot_backend/config"
	"bitbucket.org/mmdatafocus/taminot_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"type:enum('A', 'O');default:O" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Name     string   `json:"name" binding:"required"`
	Phone    string   `json:"phone"`
	Password string   `json:"password" binding:"required"`
	Role     UserRole `json:"role"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

// revokeSessions invalidates every live token of the user. Called on
// password change and on deletion.
func (user User) revokeSessions() error {
	tokens, err := config.GetRedisSetMembers("Tokens:" + user.Username)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			return err
		}
	}
	return config.RemoveRedisKey("Tokens:" + user.Username)
}

// OrgScope is the user's ledger scope: the fixed central sentinel for the
// administrator, the user's own id for an organization.
func (user User) OrgScope() string {
	if user.Role == UserRoleAdmin {
		return CentralOrgId
	}
	return strconv.Itoa(user.ID)
}

type LoginInfo struct {
	Token string   `json:"token"`
	Id    int      `json:"id"`
	Name  string   `json:"name"`
	Role  UserRole `json:"role"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

func (input *NewUser) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, id); err != nil {
		return err
	}
	if input.Role != "" && !input.Role.IsValid() {
		return fmt.Errorf("%w: invalid role", utils.ErrInvalidInput)
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
		}
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleOrg
	}

	user := User{
		Username: input.Username,
		Name:     input.Name,
		Phone:    input.Phone,
		Password: string(hashed),
		Role:     role,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: username %q is taken", utils.ErrInvalidInput, input.Username)
		}
		return nil, err
	}
	return &user, nil
}

func UpdateUser(ctx context.Context, id int, input *NewUser) (*User, error) {
	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	user.Username = input.Username
	user.Name = input.Name
	user.Phone = input.Phone
	if input.Role != "" {
		user.Role = input.Role
	}
	if input.Password != "" {
		hashed, err := utils.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		user.Password = string(hashed)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(user).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, fmt.Errorf("%w: username %q is taken", utils.ErrInvalidInput, input.Username)
		}
		return nil, err
	}
	// login cache may hold the stale row
	if err := user.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "user.go", "UpdateUser", "RemoveInstanceRedis", user.Username, err)
	}
	if input.Password != "" {
		if err := user.revokeSessions(); err != nil {
			config.LogError(config.GetLogger(), "user.go", "UpdateUser", "revokeSessions", user.Username, err)
		}
	}
	return user, nil
}

func DeleteUser(ctx context.Context, id int) (*User, error) {
	user, err := utils.FetchModel[User](ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == UserRoleAdmin {
		return nil, fmt.Errorf("%w: cannot delete the administrator", utils.ErrInvalidInput)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&User{}, id).Error; err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		config.LogError(config.GetLogger(), "user.go", "DeleteUser", "RemoveInstanceRedis", user.Username, err)
	}
	if err := user.revokeSessions(); err != nil {
		config.LogError(config.GetLogger(), "user.go", "DeleteUser", "revokeSessions", user.Username, err)
	}
	return user, nil
}

func GetUsers(ctx context.Context) ([]*User, error) {
	users, err := utils.FetchAllModels[User](ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PrepareGive()
	}
	return users, nil
}

// GetUserByUsername reads through the redis cache, falling back to the
// database and repopulating the cache on a miss.
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	user := User{}

	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if err := config.SetRedisObject("User:"+username, user, time.Hour); err != nil {
			config.LogError(config.GetLogger(), "user.go", "GetUserByUsername", "SetRedisObject", username, err)
		}
	}
	return &user, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	user, err := GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if !utils.DereferencePtr(user.IsActive) {
		return nil, fmt.Errorf("%w: user is inactive", utils.ErrInvalidInput)
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, fmt.Errorf("%w: wrong password", utils.ErrInvalidInput)
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token, username, 24*time.Hour); err != nil {
		return nil, err
	}
	if err := config.AddRedisSet("Tokens:"+username, token); err != nil {
		config.LogError(config.GetLogger(), "user.go", "Login", "AddRedisSet", username, err)
	}

	return &LoginInfo{
		Token: token,
		Id:    user.ID,
		Name:  user.Name,
		Role:  user.Role,
	}, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, fmt.Errorf("%w: token is required", utils.ErrInvalidInput)
	}
	if err := config.RemoveRedisKey("Token:" + token); err != nil {
		return false, err
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, utils.ErrNotFound
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}
