// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Cyan - Brand color, headers, focused inputs
var Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

// CyanDeep - Darker cyan for backgrounds
var CyanDeep = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#164E63"}

// Emerald - Success states
var Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

// Rose - Errors, destructive actions
var Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

// Amber - Warnings
var Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

// =============================================================================
// SURFACE COLORS
// =============================================================================

// SurfaceDim - Header and footer background
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#181825"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#E5E5E5", Dark: "#313244"}

// =============================================================================
// TEXT COLORS
// =============================================================================

// TextPrimary - Main body text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#1F2937", Dark: "#CDD6F4"}

// TextSecondary - Labels, less prominent text
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

// TextMuted - Hints, very subtle text
var TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}

// =============================================================================
// MESSAGE BUBBLE COLORS
// =============================================================================

var UserBubbleBg = lipgloss.AdaptiveColor{Light: "#CFFAFE", Dark: "#155E75"}
var UserBubbleFg = lipgloss.AdaptiveColor{Light: "#164E63", Dark: "#ECFEFF"}
var UserBubbleBorder = lipgloss.AdaptiveColor{Light: "#06B6D4", Dark: "#0E7490"}

var AssistantBubbleBorder = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#45475A"}
