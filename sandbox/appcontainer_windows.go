//go:build windows

package sandbox

import (
	"fmt"
	"unsafe"

	"go.uber.org/multierr"
	"golang.org/x/sys/windows"
)

// hresultAlreadyExists is HRESULT_FROM_WIN32(ERROR_ALREADY_EXISTS), returned
// by CreateAppContainerProfile when the profile was created earlier.
const hresultAlreadyExists = 0x800700B7

const profileDisplayName = "Workspace Sandbox"

var (
	modUserenv = windows.NewLazySystemDLL("userenv.dll")

	procCreateAppContainerProfile                 = modUserenv.NewProc("CreateAppContainerProfile")
	procDeriveAppContainerSidFromAppContainerName = modUserenv.NewProc("DeriveAppContainerSidFromAppContainerName")
	procDeriveAppContainerTokenFromToken          = modUserenv.NewProc("DeriveAppContainerTokenFromToken")
)

// AppContainerToken is a restricted primary token scoped to an
// AppContainer profile. It owns both the SID and the token and must be
// closed by the caller.
type AppContainerToken struct {
	Profile string
	SID     *windows.SID
	Token   windows.Token
}

// Close releases the token and the AppContainer SID.
func (t *AppContainerToken) Close() error {
	var err error
	if t.Token != 0 {
		err = multierr.Append(err, t.Token.Close())
		t.Token = 0
	}
	if t.SID != nil {
		err = multierr.Append(err, windows.FreeSid(t.SID))
		t.SID = nil
	}
	return err
}

// DeriveAppContainerToken creates (or reuses) the AppContainer profile for
// the workspace id and derives a restricted token for it from the current
// process token. Every failure wraps ErrAppContainerUnavailable.
func DeriveAppContainerToken(id string) (*AppContainerToken, error) {
	name := ProfileName(id)

	sid, err := appContainerSID(name)
	if err != nil {
		return nil, err
	}
	token := &AppContainerToken{Profile: name, SID: sid}

	var processToken windows.Token
	if err := windows.OpenProcessToken(windows.CurrentProcess(), windows.TOKEN_QUERY|windows.TOKEN_DUPLICATE, &processToken); err != nil {
		_ = token.Close()
		return nil, fmt.Errorf("%w: open process token: %v", ErrAppContainerUnavailable, err)
	}
	defer processToken.Close()

	// Resolved at runtime: the export is missing on older Windows builds.
	if err := procDeriveAppContainerTokenFromToken.Find(); err != nil {
		_ = token.Close()
		return nil, fmt.Errorf("%w: %v", ErrAppContainerUnavailable, err)
	}

	var derived windows.Handle
	hr, _, _ := procDeriveAppContainerTokenFromToken.Call(
		uintptr(processToken),
		uintptr(unsafe.Pointer(sid)),
		uintptr(unsafe.Pointer(&derived)),
	)
	if uint32(hr) != 0 {
		_ = token.Close()
		return nil, fmt.Errorf("%w: derive token for profile %q: hresult 0x%08x", ErrAppContainerUnavailable, name, uint32(hr))
	}
	token.Token = windows.Token(derived)

	return token, nil
}

// appContainerSID creates the named profile, or looks up its SID when the
// profile already exists.
func appContainerSID(name string) (*windows.SID, error) {
	if err := procCreateAppContainerProfile.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppContainerUnavailable, err)
	}

	name16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid profile name %q: %v", ErrAppContainerUnavailable, name, err)
	}
	display16, err := windows.UTF16PtrFromString(profileDisplayName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAppContainerUnavailable, err)
	}

	var sid *windows.SID
	hr, _, _ := procCreateAppContainerProfile.Call(
		uintptr(unsafe.Pointer(name16)),
		uintptr(unsafe.Pointer(display16)),
		uintptr(unsafe.Pointer(display16)),
		0,
		0,
		uintptr(unsafe.Pointer(&sid)),
	)

	switch uint32(hr) {
	case 0:
		return sid, nil
	case hresultAlreadyExists:
		hr, _, _ = procDeriveAppContainerSidFromAppContainerName.Call(
			uintptr(unsafe.Pointer(name16)),
			uintptr(unsafe.Pointer(&sid)),
		)
		if uint32(hr) != 0 {
			return nil, fmt.Errorf("%w: look up existing profile %q: hresult 0x%08x", ErrAppContainerUnavailable, name, uint32(hr))
		}
		return sid, nil
	default:
		return nil, fmt.Errorf("%w: create profile %q: hresult 0x%08x", ErrAppContainerUnavailable, name, uint32(hr))
	}
}
