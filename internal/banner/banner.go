package banner

import (
	"chatq/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
        __          __       
  _____/ /_  ____ _/ /_____ _
 / ___/ __ \/ __ '/ __/ __ '/
/ /__/ / / / /_/ / /_/ /_/ / 
\___/_/ /_/\__,_/\__/\__, /  
                       /_/   `

	return "\n" + style.Render(ascii) + "\n"
}
