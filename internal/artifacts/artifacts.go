// Copyright 2024 Dirstate Authors
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

// Package artifacts holds files embedded into the dirstate binary.
package artifacts

import _ "embed"

// Repository artifacts

//go:embed defaults/dirstate.yaml
var DefaultSettings []byte

//go:embed defaults/hgignore.txt
var DefaultIgnore []byte
