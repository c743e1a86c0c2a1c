// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bamprovider gives each caller an independent, coordinate-ordered
// cursor over one contig range of an indexed BAM file.
//
// A Provider is shared by all contig workers; every NewIterator call returns
// a handle with its own file reader and seek position, so workers never
// contend for a single cursor.
package bamprovider
