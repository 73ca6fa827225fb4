package middleware

import (
	"errors"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Rila-coder/ROSCA-System-sub002/internal/apperr"
	"github.com/Rila-coder/ROSCA-System-sub002/internal/models"
)

// RequireAuth verifies the Firebase session cookie and resolves the local
// user record, storing userID/userUID/userEmail in the request context. A
// first authenticated request provisions the local account row.
func RequireAuth(authClient *auth.Client, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return apperr.Unauthorized("Authentication is not configured")
			}

			cookie, err := c.Cookie("session")
			if err != nil || cookie.Value == "" {
				return apperr.Unauthorized("Please log in to continue")
			}

			decodedToken, err := authClient.VerifySessionCookie(c.Request().Context(), cookie.Value)
			if err != nil {
				return apperr.Unauthorized("Invalid or expired session")
			}

			email, _ := decodedToken.Claims["email"].(string)
			name, _ := decodedToken.Claims["name"].(string)

			user, err := resolveUser(db, decodedToken.UID, email, name)
			if err != nil {
				return err
			}

			c.Set("userID", user.ID)
			c.Set("userUID", decodedToken.UID)
			c.Set("userEmail", user.Email)

			return next(c)
		}
	}
}

func resolveUser(db *gorm.DB, firebaseUID, email, name string) (*models.User, error) {
	var user models.User
	err := db.Where("firebase_uid = ?", firebaseUID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{FirebaseUID: firebaseUID, Email: email, Name: name}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
