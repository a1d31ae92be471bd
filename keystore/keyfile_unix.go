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

	"golang.org/x/sys/unix"
)

// checkOpenFilePermissions requires a key file owned by the current user
// that nobody else can read or write
func checkOpenFilePermissions(f *os.File) error {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil { //nolint:gosec // fd fits in int
		return fmt.Errorf("stat key file %q: %w", f.Name(), err)
	}
	if uid := os.Geteuid(); uid >= 0 && st.Uid != uint32(uid) { //nolint:gosec // uid is non-negative
		return fmt.Errorf(
			"key file %q is owned by uid %d, not %d: %w",
			f.Name(),
			st.Uid,
			uid,
			ErrInsecureFileMode,
		)
	}
	if perm := os.FileMode(st.Mode).Perm(); perm&0o077 != 0 {
		return fmt.Errorf(
			"key file %q has mode %04o, want 0600 or stricter: %w",
			f.Name(),
			perm,
			ErrInsecureFileMode,
		)
	}
	return nil
}
