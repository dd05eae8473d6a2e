// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

// perm_windows.go - config file permission check for Windows.
//
// SECURITY: POSIX mode bits carry no meaning here, so the DACL is
// inspected instead. Broad read access to the config file exposes the
// API key and GitHub token.

package config

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ensureSecurePermissions inspects the file's DACL and reports when a
// broad principal (Everyone, Users, Authenticated Users) has been
// granted access. The caller surfaces the error as a warning; unlike
// the Unix variant nothing is auto-fixed, since rewriting a DACL the
// user set up deliberately would be worse than warning about it.
func ensureSecurePermissions(path string) error {
	sd, err := windows.GetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("failed to read security info: %w", err)
	}

	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("failed to read DACL: %w", err)
	}
	if dacl == nil {
		return fmt.Errorf("NULL DACL grants full access to everyone")
	}

	broad := []struct {
		name string
		kind windows.WELL_KNOWN_SID_TYPE
	}{
		{"Everyone", windows.WinWorldSid},
		{"Users", windows.WinBuiltinUsersSid},
		{"Authenticated Users", windows.WinAuthenticatedUserSid},
	}
	for _, group := range broad {
		sid, err := windows.CreateWellKnownSid(group.kind)
		if err != nil {
			continue
		}
		if hasExplicitAccess(dacl, sid) {
			return fmt.Errorf("%s group has access to the config file", group.name)
		}
	}

	return nil
}

// hasExplicitAccess reports whether a SID appears in a granting ACL
// entry. Uses GetExplicitEntriesFromAclW from advapi32.
func hasExplicitAccess(dacl *windows.ACL, sid *windows.SID) bool {
	if dacl == nil || sid == nil {
		return false
	}

	var entries *windows.EXPLICIT_ACCESS
	var count uint32

	advapi32 := windows.NewLazySystemDLL("advapi32.dll")
	proc := advapi32.NewProc("GetExplicitEntriesFromAclW")

	ret, _, _ := proc.Call(
		uintptr(unsafe.Pointer(dacl)),
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&entries)),
	)
	if ret != 0 || count == 0 {
		return false
	}
	if entries != nil {
		defer windows.LocalFree(windows.Handle(unsafe.Pointer(entries)))
	}

	for _, entry := range unsafe.Slice(entries, count) {
		if entry.AccessMode != windows.GRANT_ACCESS && entry.AccessMode != windows.SET_ACCESS {
			continue
		}
		if entry.Trustee.TrusteeForm != windows.TRUSTEE_IS_SID {
			continue
		}
		entrySid := (*windows.SID)(unsafe.Pointer(entry.Trustee.TrusteeValue))
		if entrySid != nil && entrySid.Equals(sid) {
			return true
		}
	}

	return false
}
