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

// Well-known groups that must not be granted access to a key file
var insecureSIDs = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           "BUILTIN\\Users",
	"S-1-5-32-545": "BUILTIN\\Users",
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkOpenFilePermissions inspects the DACL of the open file. NTFS keeps
// an open file from being replaced, so checking by name is safe here.
func checkOpenFilePermissions(f *os.File) error {
	sd, err := windows.GetNamedSecurityInfo(
		f.Name(),
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("failed to get security info for %q: %w", f.Name(), err)
	}
	return checkSDDL(f.Name(), sd.String())
}

// checkSDDL fails when an allow ACE in the DACL names an insecure group
func checkSDDL(path, sddl string) error {
	idx := strings.Index(sddl, "D:")
	if idx < 0 {
		return fmt.Errorf(
			"key file %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	dacl := sddl[idx+2:]
	if s := strings.Index(dacl, "S:"); s >= 0 {
		dacl = dacl[:s]
	}
	for _, ace := range strings.Split(dacl, "(") {
		ace = strings.TrimSuffix(ace, ")")
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(ace, ";")
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		if name, ok := insecureSIDs[fields[5]]; ok {
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
