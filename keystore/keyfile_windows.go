//go:build windows

// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// Trustees that must not be granted access to a key file, by SDDL alias
// and by SID
var insecureTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkOpenFilePermissions reads the DACL of the open handle. NTFS does not
// allow replacing a file that is held open.
func checkOpenFilePermissions(f *os.File) error {
	sd, err := windows.GetSecurityInfo(
		windows.Handle(f.Fd()),
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("failed to get security info for %q: %w", f.Name(), err)
	}
	return checkDACL(f.Name(), sd.String())
}

type aclEntry struct {
	aceType string
	trustee string
}

// parseDACL returns the entries of the D: section of an SDDL string and
// false when there is no DACL
func parseDACL(sddl string) ([]aclEntry, bool) {
	_, dacl, ok := strings.Cut(sddl, "D:")
	if !ok {
		return nil, false
	}
	if sacl := strings.Index(dacl, "S:"); sacl >= 0 {
		dacl = dacl[:sacl]
	}
	var ret []aclEntry
	for {
		_, rest, ok := strings.Cut(dacl, "(")
		if !ok {
			break
		}
		ace, after, ok := strings.Cut(rest, ")")
		if !ok {
			break
		}
		dacl = after
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(ace, ";")
		if len(fields) < 6 {
			continue
		}
		ret = append(ret, aclEntry{aceType: fields[0], trustee: fields[5]})
	}
	return ret, true
}

func checkDACL(path string, sddl string) error {
	entries, ok := parseDACL(sddl)
	if !ok {
		return fmt.Errorf(
			"key file %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	for _, e := range entries {
		if e.aceType != "A" {
			continue
		}
		if name, ok := insecureTrustees[e.trustee]; ok {
			return fmt.Errorf(
				"key file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
	return nil
}
