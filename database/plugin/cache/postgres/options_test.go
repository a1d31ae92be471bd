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

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	p, err := NewWithOptions(WithPassword("secret"))
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=localhost user=postgres password=secret dbname=postgres port=5432 sslmode=disable TimeZone=UTC",
		p.DSN(),
	)
	assert.NoError(t, p.Stop())
}

func TestDSNOverrides(t *testing.T) {
	p, err := NewWithOptions(
		WithHost("db.internal"),
		WithDSN("  postgres://u:p@db/daogov  "),
	)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/daogov", p.DSN())
}

func TestOptions(t *testing.T) {
	p, err := NewWithOptions(
		WithHost("db.internal"),
		WithPort(6543),
		WithUser("gov"),
		WithDatabase("daogov"),
		WithSSLMode("require"),
		WithTimeZone("Europe/Berlin"),
	)
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=db.internal user=gov password= dbname=daogov port=6543 sslmode=require TimeZone=Europe/Berlin",
		p.DSN(),
	)
}
