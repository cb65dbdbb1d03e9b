//go:build !windows

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
)

// permMask covers every group and other permission bit
const permMask os.FileMode = 0o077

// checkOpenFilePermissions rejects key files readable or writable by anyone
// other than the owner
func checkOpenFilePermissions(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat key file %s: %w", f.Name(), err)
	}
	if perm := info.Mode().Perm(); perm&permMask != 0 {
		return fmt.Errorf(
			"%w: %s is %#o, expected 0600 or stricter",
			ErrInsecureFileMode,
			f.Name(),
			perm,
		)
	}
	return nil
}
