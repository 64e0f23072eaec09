// internal/app/system/viewdata/viewdata.go
package viewdata

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - LoginID / loginID / login_id: The human-readable string users type to log in

import (
	"net/http"

	"github.com/dalemusser/stratalert/internal/app/system/auth"
	"github.com/dalemusser/stratalert/internal/app/system/authz"
	"github.com/dalemusser/waffle/pantry/httpnav"
	"github.com/gorilla/csrf"
)

// DefaultSiteName is used when Init has not been called.
const DefaultSiteName = "StratAlert"

// BaseVM contains common fields for all view models.
// Embed this struct in your feature-specific view models.
//
// Usage:
//
//	type myPageData struct {
//	    viewdata.BaseVM
//	    // page-specific fields...
//	}
//
//	data := myPageData{
//	    BaseVM: viewdata.New(r),
//	    // page-specific fields...
//	}
type BaseVM struct {
	SiteName string

	// User context (from auth middleware)
	IsLoggedIn bool
	UserID     string
	LoginID    string // User's login identifier
	Role       string
	UserName   string

	// Page context
	Title       string
	BackURL     string
	CurrentPath string

	// Security
	CSRFToken string // CSRF token for forms (use in hidden input field)
}

// siteName is set by Init from configuration.
var siteName = DefaultSiteName

// Init sets the site name shown in page chrome.
// Call this once at startup from bootstrap.
func Init(name string) {
	if name != "" {
		siteName = name
	}
}

// New creates a BaseVM populated from the request context.
// This is the standard way to create a BaseVM for most handlers.
func New(r *http.Request) BaseVM {
	role, name, userID, signedIn := authz.UserCtx(r)

	vm := BaseVM{
		SiteName:    siteName,
		IsLoggedIn:  signedIn,
		UserID:      userID.Hex(),
		Role:        role,
		UserName:    name,
		CurrentPath: httpnav.CurrentPath(r),
		CSRFToken:   csrf.Token(r),
	}

	// Get LoginID from session if logged in
	if signedIn {
		if user, ok := auth.CurrentUser(r); ok {
			vm.LoginID = user.LoginID
		}
	}

	return vm
}

// NewWithTitle creates a BaseVM for a page with a title and back-button default.
func NewWithTitle(r *http.Request, title, backDefault string) BaseVM {
	vm := New(r)
	vm.Title = title
	vm.BackURL = httpnav.ResolveBackURL(r, backDefault)
	return vm
}
